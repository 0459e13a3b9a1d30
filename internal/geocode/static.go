package geocode

import (
	"slices"
	"strings"
)

// scLocations covers the South Carolina cities and counties that appear in the
// state, federal and city bid feeds.
var scLocations = map[string]Point{
	"south carolina":                {33.8361, -81.1637},
	"sc":                            {33.8361, -81.1637},
	"sc, usa":                       {33.8361, -81.1637},
	"south carolina, usa":           {33.8361, -81.1637},
	"charleston":                    {32.7765, -79.9311},
	"charleston, sc":                {32.7765, -79.9311},
	"charleston, south carolina":    {32.7765, -79.9311},
	"charleston county":             {32.7765, -79.9311},
	"north charleston":              {32.8546, -79.9748},
	"mount pleasant":                {32.8323, -79.8284},
	"goose creek":                   {32.9810, -80.0326},
	"summerville":                   {33.0185, -80.1756},
	"bluffton":                      {32.2371, -80.8604},
	"hilton head island":            {32.2163, -80.7526},
	"beaufort":                      {32.4316, -80.6698},
	"beaufort county":               {32.4316, -80.6698},
	"berkeley county":               {33.1899, -80.0095},
	"dorchester county":             {33.0877, -80.4213},
	"columbia":                      {34.0007, -81.0348},
	"columbia, sc":                  {34.0007, -81.0348},
	"columbia, south carolina":      {34.0007, -81.0348},
	"columbia, south carolina, usa": {34.0007, -81.0348},
	"richland county":               {34.0007, -81.0348},
	"lexington":                     {33.9776, -81.2373},
	"lexington county":              {33.9776, -81.2373},
	"orangeburg":                    {33.4918, -80.8651},
	"orangeburg county":             {33.4918, -80.8651},
	"sumter":                        {33.9204, -80.3412},
	"sumter county":                 {33.9204, -80.3412},
	"aiken":                         {33.5604, -81.7198},
	"aiken county":                  {33.5604, -81.7198},
	"newberry county":               {34.2776, -81.6135},
	"kershaw county":                {34.2891, -80.5851},
	"calhoun county":                {33.6754, -80.7840},
	"florence":                      {34.1954, -79.7626},
	"florence county":               {34.1954, -79.7626},
	"myrtle beach":                  {33.6891, -78.8867},
	"horry county":                  {33.6891, -78.8867},
	"conway":                        {33.8360, -79.0481},
	"darlington county":             {34.3196, -79.8761},
	"marion county":                 {34.1798, -79.3997},
	"dillon county":                 {34.4151, -79.3722},
	"williamsburg county":           {33.6193, -79.7289},
	"georgetown county":             {33.3762, -79.2945},
	"greenville":                    {34.8526, -82.3940},
	"greenville county":             {34.8526, -82.3940},
	"spartanburg":                   {34.9496, -81.9321},
	"spartanburg county":            {34.9496, -81.9321},
	"anderson":                      {34.5034, -82.6501},
	"anderson county":               {34.5034, -82.6501},
	"rock hill":                     {34.9249, -81.0251},
	"york county":                   {34.9960, -81.2417},
	"cherokee county":               {35.0457, -81.6237},
	"union county":                  {34.7154, -81.6237},
	"chester county":                {34.7043, -81.1565},
	"laurens county":                {34.4990, -81.9835},
	"pickens county":                {34.8845, -82.7071},
	"oconee county":                 {34.7654, -83.0604},
	"abbeville county":              {34.2243, -82.3871},
	"mccormick county":              {33.9119, -82.2954},
	"edgefield county":              {33.7929, -81.9546},
	"saluda county":                 {34.0076, -81.7726},
}

// knownByLength lists table keys longest first so substring matching prefers the
// most specific name.
var knownByLength = func() []string {
	keys := make([]string, 0, len(scLocations))
	for k := range scLocations {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return keys
}()

var placePrefixes = []string{"city of ", "town of ", "county of "}

// staticLookup resolves a location from the built-in table without any I/O.
func staticLookup(location string) (Point, bool) {
	key := strings.ToLower(strings.TrimSpace(location))
	if key == "" {
		return Point{}, false
	}
	if p, ok := scLocations[key]; ok {
		return p, true
	}
	for _, prefix := range placePrefixes {
		stripped, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		if p, ok := scLocations[stripped]; ok {
			return p, true
		}
		city, _, _ := strings.Cut(stripped, ",")
		if p, ok := scLocations[strings.TrimSpace(city)]; ok {
			return p, true
		}
	}
	for _, known := range knownByLength {
		if len(known) > 2 && strings.Contains(key, known) {
			return scLocations[known], true
		}
	}
	return Point{}, false
}
