// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package claude

import (
	"bytes"
	"text/template"
)

// describePrompt asks for the structured description of one image. The keys
// match types.Description.
var describePrompt = template.Must(template.New("describe").Parse(`Analyze this photo of a residential building and extract the characteristics that identify it.

Be objective and specific. Focus on elements that distinguish this building from its neighbours.

Respond with a JSON object only, no markdown and no commentary:

{
  "architecture": {
    "building_type": "house/apartment building/condominium/commercial",
    "floors_visible": number of floors,
    "style": "modern/classic/colonial/industrial/contemporary",
    "facade_colors": ["dominant colour", "secondary colour"],
    "materials": ["concrete", "brick", "glass"],
    "roof_type": "exposed tiles/flat slab/hidden tiles/other"
  },
  "distinctive_features": {
    "balconies": "description or none",
    "windows": "style and approximate count",
    "gate": "type of gate or none",
    "walls": "perimeter wall description or none",
    "unique_elements": ["element 1", "element 2"]
  },
  "urban_context": {
    "street_type": "residential/avenue/steep street/alley",
    "sidewalk": "wide/narrow/absent",
    "vegetation": "trees and plants visible",
    "neighbors": "similar houses/towers/mixed/isolated",
    "urban_elements": ["utility poles", "bus stop"]
  },
  "visible_text": {
    "condo_name": "name or none",
    "street_signs": ["sign 1"],
    "numbers": ["address number"],
    "businesses": ["shop name"]
  },
  "photography": {
    "angle": "frontal/side/diagonal",
    "distance": "close/medium/far",
    "time_of_day": "morning/noon/afternoon/night",
    "weather": "sunny/cloudy/rain"
  }
}`))

// validatePrompt compares two descriptions at a candidate location.
var validatePrompt = template.Must(template.New("validate").Parse(`Compare these two descriptions of buildings and decide whether they show the SAME place.

User photo:
{{.Query}}

Street-level imagery (candidate):
{{.Candidate}}

Candidate coordinates: {{printf "%.6f" .Lat}}, {{printf "%.6f" .Lon}}
Visual similarity (embedding + keypoints): {{printf "%.3f" .Visual}}

Check carefully:
1. Does the architecture match (style, floors, roof, colours)?
2. Do the distinctive elements coincide (gate, windows, balconies)?
3. Is the urban context compatible (trees, poles, street, neighbours)?
4. Are there UNIQUE elements that confirm or rule out the match?
5. Allow for plausible changes such as renovation, repainting or grown vegetation.

Respond with a JSON object only:

{
  "is_match": true or false,
  "confidence": 0.0 to 1.0,
  "reasoning": "one or two sentences",
  "matching_elements": ["element that matches"],
  "discrepancies": ["difference"],
  "likely_changes": ["possible renovation"]
}`))

// addressPrompt asks for the most likely postal address of a decided location.
var addressPrompt = template.Must(template.New("address").Parse(`Determine the most likely postal address of this building from the information below.

Confirmed coordinates: {{printf "%.6f" .Lat}}, {{printf "%.6f" .Lon}}
Visual analysis of the user photo:
{{.Query}}
Nearby place: {{if .Name}}{{.Name}}{{else}}none{{end}}
Place address: {{if .Address}}{{.Address}}{{else}}unknown{{end}}

Respond with a JSON object only:

{
  "street": "street name",
  "number": "number if identified",
  "neighborhood": "neighbourhood",
  "city": "city",
  "state": "state code",
  "zip_code": "postal code if known",
  "full_address": "formatted full address",
  "confidence": 0.0 to 1.0
}`))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
