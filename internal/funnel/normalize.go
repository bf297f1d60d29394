// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package funnel

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/geolocate/pkg/types"
)

// foldKey lowercases s, strips diacritics and collapses whitespace so that
// "Condomínio  Jardim" and "condominio jardim" compare equal.
func foldKey(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = norm.NFKC.String(s)
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// placeKey identifies a place by folded name and coordinate at about 0.1 m.
func placeKey(p types.Place) string {
	return foldKey(p.Name) + "|" +
		strconv.FormatFloat(p.Coordinate.Lat, 'f', 6, 64) + "," +
		strconv.FormatFloat(p.Coordinate.Lon, 'f', 6, 64)
}
