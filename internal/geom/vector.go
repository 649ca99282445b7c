// Package geom holds the tile-grid vector arithmetic shared by the playback packages.
package geom

import "math"

// Vec is an integer tile coordinate.
type Vec struct {
	X int32
	Y int32
}

// Add returns a+b.
func (a Vec) Add(b Vec) Vec { return Vec{X: a.X + b.X, Y: a.Y + b.Y} }

// Sub returns a-b.
func (a Vec) Sub(b Vec) Vec { return Vec{X: a.X - b.X, Y: a.Y - b.Y} }

// Dot returns the dot product of a and b.
func (a Vec) Dot(b Vec) int64 { return int64(a.X)*int64(b.X) + int64(a.Y)*int64(b.Y) }

// DistanceSquared returns the squared euclidean distance between a and b.
func (a Vec) DistanceSquared(b Vec) int64 {
	d := a.Sub(b)
	return d.Dot(d)
}

// Length returns the euclidean length of a.
func (a Vec) Length() float64 { return math.Sqrt(float64(a.Dot(a))) }

// Point is a fractional position used while interpolating between tiles.
type Point struct {
	X float64
	Y float64
}

// Lerp interpolates from a to b by factor t in [0,1].
func Lerp(a, b Vec, t float64) Point {
	return Point{
		X: float64(a.X) + (float64(b.X)-float64(a.X))*t,
		Y: float64(a.Y) + (float64(b.Y)-float64(a.Y))*t,
	}
}

// Directions lists the eight neighbour offsets in the order W, NW, N, NE, E, SE, S, SW.
var Directions = [8]Vec{
	{X: -1, Y: 0},
	{X: -1, Y: -1},
	{X: 0, Y: -1},
	{X: 1, Y: -1},
	{X: 1, Y: 0},
	{X: 1, Y: 1},
	{X: 0, Y: 1},
	{X: -1, Y: 1},
}
