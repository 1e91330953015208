package types

import "math"

// Location 最近一次上报的位置，经纬度为角度
type Location struct {
	Lat    float64
	Lon    float64
	Height float64
}

// LocationFromRadians 由弧度经纬度构造
func LocationFromRadians(lat, lon, height float64) Location {
	return Location{
		Lat:    lat * 180 / math.Pi,
		Lon:    lon * 180 / math.Pi,
		Height: height,
	}
}

// Radians 返回弧度经纬度
func (l Location) Radians() (lat, lon float64) {
	return l.Lat * math.Pi / 180, l.Lon * math.Pi / 180
}
