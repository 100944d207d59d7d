package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

type BBox struct{ X1, Y1, X2, Y2 float64 }

// String returns the bbox in "minx,miny,maxx,maxy,EPSG:4326" format.
func (b BBox) String() string {
	return fmt.Sprintf("%.5f,%.5f,%.5f,%.5f,EPSG:4326", b.X1, b.Y1, b.X2, b.Y2)
}

var hotCenters = [][2]float64{
	{18.0686, 59.3293}, // Stockholm city
	{17.9400, 59.4000}, // Kista
	{18.1600, 59.2500}, // Nacka
	{17.8500, 59.3300}, // Bromma
}

// makeBBoxes builds a pool of hot boxes around hotCenters followed by cold boxes inside area.
// With a zipf pick over the pool the first entries dominate the load.
func makeBBoxes(count int, area BBox, r *rand.Rand) []BBox {
	if count <= 0 {
		return nil
	}
	bboxes := make([]BBox, 0, count)
	hot := min(count, max(8, count/4))
	for i := range hot {
		c := hotCenters[i%len(hotCenters)]
		dx, dy := (r.Float64()-0.5)*0.05, (r.Float64()-0.5)*0.05
		w, h := 0.02+r.Float64()*0.03, 0.01+r.Float64()*0.02
		lon, lat := c[0]+dx, c[1]+dy
		bboxes = append(bboxes, BBox{lon - w/2, lat - h/2, lon + w/2, lat + h/2})
	}
	for len(bboxes) < count {
		lon := area.X1 + r.Float64()*(area.X2-area.X1)
		lat := area.Y1 + r.Float64()*(area.Y2-area.Y1)
		w, h := 0.05*r.Float64()+0.01, 0.03*r.Float64()+0.01
		bboxes = append(bboxes, BBox{lon - w/2, lat - h/2, lon + w/2, lat + h/2})
	}
	return bboxes
}

// insertBody encodes one POI feature collection for POST /collections/{layer}/items.
func insertBody(id uint64, area BBox, r *rand.Rand) []byte {
	lon := area.X1 + r.Float64()*(area.X2-area.X1)
	lat := area.Y1 + r.Float64()*(area.Y2-area.Y1)
	body, _ := json.Marshal(map[string]any{
		"type": "FeatureCollection",
		"features": []any{map[string]any{
			"type":     "Feature",
			"id":       id,
			"geometry": map[string]any{"type": "Point", "coordinates": []float64{lon, lat}},
			"properties": map[string]any{
				"Name":     fmt.Sprintf("loadgen-%d", id),
				"Category": "loadgen",
			},
		}},
	})
	return body
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
