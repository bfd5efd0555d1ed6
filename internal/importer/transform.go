package importer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PurchaseOrder is the document shape stored in the purchase orders
// collection. Pointer fields become null in the database when absent.
type PurchaseOrder struct {
	PurchaseOrderNumber *string        `bson:"purchase_order_number"`
	RequisitionNumber   *string        `bson:"requisition_number"`
	LPANumber           *string        `bson:"lpa_number"`
	Dates               Dates          `bson:"dates"`
	Acquisition         Acquisition    `bson:"acquisition"`
	Department          Department     `bson:"department"`
	Supplier            Supplier       `bson:"supplier"`
	Item                Item           `bson:"item"`
	CalCard             *bool          `bson:"cal_card"`
	Classification      Classification `bson:"classification"`
	Metadata            Metadata       `bson:"metadata"`
}

type Dates struct {
	Creation        *time.Time `bson:"creation"`
	Purchase        *time.Time `bson:"purchase"`
	FiscalYear      *string    `bson:"fiscal_year"`
	FiscalYearStart *int       `bson:"fiscal_year_start"`
}

type Acquisition struct {
	Type      *string `bson:"type"`
	SubType   *string `bson:"sub_type"`
	Method    *string `bson:"method"`
	SubMethod *string `bson:"sub_method"`
}

type Department struct {
	Name           *string `bson:"name"`
	NormalizedName *string `bson:"normalized_name"`
}

type Supplier struct {
	Code           *string   `bson:"code"`
	Name           *string   `bson:"name"`
	Qualifications []string  `bson:"qualifications"`
	ZipCode        *string   `bson:"zip_code"`
	Location       *GeoPoint `bson:"location"`
}

// GeoPoint is a GeoJSON point with the source zip code carried alongside.
type GeoPoint struct {
	Type        string     `bson:"type"`
	Coordinates [2]float64 `bson:"coordinates"` // [longitude, latitude]
	ZipCode     *string    `bson:"zip_code"`
}

type Item struct {
	Name        *string  `bson:"name"`
	Description *string  `bson:"description"`
	Quantity    *float64 `bson:"quantity"`
	UnitPrice   *float64 `bson:"unit_price"`
	TotalPrice  *float64 `bson:"total_price"`
}

type Classification struct {
	Codes  []string `bson:"codes"`
	UNSPSC UNSPSC   `bson:"unspsc"`
}

type UNSPSC struct {
	Code      *string   `bson:"code"`
	Commodity CodeTitle `bson:"commodity"`
	Class     CodeTitle `bson:"class"`
	Family    CodeTitle `bson:"family"`
	Segment   CodeTitle `bson:"segment"`
}

type CodeTitle struct {
	Code  *string `bson:"code"`
	Title *string `bson:"title"`
}

type Metadata struct {
	ImportDate time.Time   `bson:"import_date"`
	SourceFile string      `bson:"source_file"`
	Quality    DataQuality `bson:"data_quality"`
}

type DataQuality struct {
	HasLocation     bool `bson:"has_location"`
	HasPurchaseDate bool `bson:"has_purchase_date"`
	HasUNSPSC       bool `bson:"has_unspsc"`
}

var (
	coordsPattern     = regexp.MustCompile(`\(([-\d.]+),\s*([-\d.]+)\)`)
	yearPattern       = regexp.MustCompile(`\d{4}`)
	locationSeparator = regexp.MustCompile(`\\n|\n`)
	codeSeparator     = regexp.MustCompile(`[\\n\n,]`)

	departmentNoise = []*regexp.Regexp{
		regexp.MustCompile(`(?i),?\s*Department of\s*$`),
		regexp.MustCompile(`(?i),?\s*Office of\s*$`),
		regexp.MustCompile(`(?i),?\s*State of\s*$`),
		regexp.MustCompile(`(?i)^\s*The\s+`),
	}
)

// cleanString trims a raw CSV value and maps empty and placeholder values
// to nil.
func cleanString(value string) *string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil
	}
	switch strings.ToUpper(cleaned) {
	case "NULL", "N/A", "NA", "NONE":
		return nil
	}
	return &cleaned
}

// parseDate accepts MM/DD/YYYY with YYYY-MM-DD as a fallback.
func parseDate(value string) *time.Time {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil
	}
	for _, layout := range []string{"01/02/2006", "2006-01-02"} {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return &t
		}
	}
	return nil
}

// parseCurrency strips dollar signs and thousands separators.
func parseCurrency(value string) *float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil
	}
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseNumber(value string) *float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// parseLocation extracts a GeoJSON point from "zipcode\n(lat, lon)" values.
// Coordinates are stored longitude first.
func parseLocation(value string) *GeoPoint {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil
	}

	parts := locationSeparator.Split(cleaned, 2)
	if len(parts) < 2 {
		return nil
	}

	m := coordsPattern.FindStringSubmatch(parts[1])
	if m == nil {
		return nil
	}
	lat, latErr := strconv.ParseFloat(m[1], 64)
	lon, lonErr := strconv.ParseFloat(m[2], 64)
	if latErr != nil || lonErr != nil {
		return nil
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil
	}

	return &GeoPoint{
		Type:        "Point",
		Coordinates: [2]float64{lon, lat},
		ZipCode:     cleanString(parts[0]),
	}
}

// parseQualifications splits space-separated certification codes.
func parseQualifications(value string) []string {
	return strings.Fields(value)
}

// parseClassificationCodes splits newline- or comma-separated codes.
func parseClassificationCodes(value string) []string {
	var codes []string
	for _, c := range codeSeparator.Split(value, -1) {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	if codes == nil {
		return []string{}
	}
	return codes
}

func parseBoolean(value string) *bool {
	var b bool
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "YES":
		b = true
	case "NO":
		b = false
	default:
		return nil
	}
	return &b
}

// normalizeDepartmentName strips boilerplate prefixes and suffixes from a
// department name.
func normalizeDepartmentName(value string) *string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil
	}
	for _, p := range departmentNoise {
		cleaned = p.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// parseFiscalYearStart extracts the starting year from "2013-2014" values.
func parseFiscalYearStart(value string) *int {
	m := yearPattern.FindString(value)
	if m == "" {
		return nil
	}
	year, err := strconv.Atoi(m)
	if err != nil || year < 2000 || year > 2100 {
		return nil
	}
	return &year
}

// TransformRow maps one CSV row (keyed by header name) to a purchase order
// document.
func TransformRow(row map[string]string, sourceFile string) PurchaseOrder {
	unspsc := cleanString(row["Normalized UNSPSC"])
	purchaseDate := parseDate(row["Purchase Date"])
	location := parseLocation(row["Location"])

	// The location cell carries a zip code that fills in when the
	// dedicated column is empty.
	zipCode := cleanString(row["Supplier Zip Code"])
	if zipCode == nil && location != nil {
		zipCode = location.ZipCode
	}

	return PurchaseOrder{
		PurchaseOrderNumber: cleanString(row["Purchase Order Number"]),
		RequisitionNumber:   cleanString(row["Requisition Number"]),
		LPANumber:           cleanString(row["LPA Number"]),
		Dates: Dates{
			Creation:        parseDate(row["Creation Date"]),
			Purchase:        purchaseDate,
			FiscalYear:      cleanString(row["Fiscal Year"]),
			FiscalYearStart: parseFiscalYearStart(row["Fiscal Year"]),
		},
		Acquisition: Acquisition{
			Type:      cleanString(row["Acquisition Type"]),
			SubType:   cleanString(row["Sub-Acquisition Type"]),
			Method:    cleanString(row["Acquisition Method"]),
			SubMethod: cleanString(row["Sub-Acquisition Method"]),
		},
		Department: Department{
			Name:           cleanString(row["Department Name"]),
			NormalizedName: normalizeDepartmentName(row["Department Name"]),
		},
		Supplier: Supplier{
			Code:           cleanString(row["Supplier Code"]),
			Name:           cleanString(row["Supplier Name"]),
			Qualifications: parseQualifications(row["Supplier Qualifications"]),
			ZipCode:        zipCode,
			Location:       location,
		},
		Item: Item{
			Name:        cleanString(row["Item Name"]),
			Description: cleanString(row["Item Description"]),
			Quantity:    parseNumber(row["Quantity"]),
			UnitPrice:   parseCurrency(row["Unit Price"]),
			TotalPrice:  parseCurrency(row["Total Price"]),
		},
		CalCard: parseBoolean(row["CalCard"]),
		Classification: Classification{
			Codes: parseClassificationCodes(row["Classification Codes"]),
			UNSPSC: UNSPSC{
				Code: unspsc,
				Commodity: CodeTitle{
					Code:  unspsc,
					Title: cleanString(row["Commodity Title"]),
				},
				Class: CodeTitle{
					Code:  cleanString(row["Class"]),
					Title: cleanString(row["Class Title"]),
				},
				Family: CodeTitle{
					Code:  cleanString(row["Family"]),
					Title: cleanString(row["Family Title"]),
				},
				Segment: CodeTitle{
					Code:  cleanString(row["Segment"]),
					Title: cleanString(row["Segment Title"]),
				},
			},
		},
		Metadata: Metadata{
			ImportDate: time.Now().UTC(),
			SourceFile: sourceFile,
			Quality: DataQuality{
				HasLocation:     location != nil,
				HasPurchaseDate: purchaseDate != nil,
				HasUNSPSC:       unspsc != nil,
			},
		},
	}
}

// ValidateDocument reports problems that disqualify a document from import.
func ValidateDocument(doc PurchaseOrder) []string {
	var errs []string

	if doc.PurchaseOrderNumber == nil && doc.RequisitionNumber == nil {
		errs = append(errs, "missing both purchase order number and requisition number")
	}
	if doc.Item.TotalPrice != nil && math.Abs(*doc.Item.TotalPrice) > 1e12 {
		errs = append(errs, "total price out of range")
	}
	if loc := doc.Supplier.Location; loc != nil && loc.Type != "Point" {
		errs = append(errs, "invalid GeoJSON location format")
	}

	return errs
}
