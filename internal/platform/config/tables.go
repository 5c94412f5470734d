package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default_tables.yaml
var defaultTablesYAML []byte

// Tables holds the static reference data the quoting engine reads: packaging catalog, zones,
// carrier rates, delivery estimates, production costs and VAT rates.
type Tables struct {
	ServiceNames map[string]string `yaml:"serviceNames"`
	Zones        []ZoneRow         `yaml:"zones" validate:"required,min=1,dive"`
	Rates        []RateRow         `yaml:"rates" validate:"required,min=1,dive"`
	Surcharges   []SurchargeRow    `yaml:"surcharges" validate:"dive"`
	Insurance    InsuranceRow      `yaml:"insurance"`
	ETAs         []ETARow          `yaml:"etas" validate:"dive"`
	Packaging    PackagingRows     `yaml:"packaging"`
	BaseCosts    []BaseCostRow     `yaml:"baseCosts" validate:"dive"`
	VAT          VATRows           `yaml:"vat"`
}

type ZoneRow struct {
	ID        string   `yaml:"id" validate:"required"`
	Countries []string `yaml:"countries" validate:"required,min=1,dive,required"`
}

type RateRow struct {
	Zone         string `yaml:"zone" validate:"required"`
	Service      string `yaml:"service" validate:"required,oneof=STANDARD EXPRESS"`
	FirstKg      int64  `yaml:"firstKg" validate:"gte=0"`
	AdditionalKg int64  `yaml:"additionalKg" validate:"gte=0"`
}

type SurchargeRow struct {
	Zone               string `yaml:"zone" validate:"required"`
	Oversize           int64  `yaml:"oversize" validate:"gte=0"`
	SignatureFee       int64  `yaml:"signatureFee" validate:"gte=0"`
	SignatureThreshold int64  `yaml:"signatureThreshold" validate:"gte=0"`
}

type InsuranceRow struct {
	BasisPoints int64 `yaml:"basisPoints" validate:"gte=0,lte=10000"`
}

type ETARow struct {
	Zone    string `yaml:"zone" validate:"required"`
	Service string `yaml:"service" validate:"required,oneof=STANDARD EXPRESS"`
	MinDays int    `yaml:"minDays" validate:"gte=0"`
	MaxDays int    `yaml:"maxDays" validate:"gtefield=MinDays"`
}

type PackagingRows struct {
	Boxes []BoxRow  `yaml:"boxes" validate:"required,min=1,dive"`
	Tubes []TubeRow `yaml:"tubes" validate:"dive"`
}

type BoxRow struct {
	ID          string  `yaml:"id" validate:"required"`
	LengthCm    float64 `yaml:"lengthCm" validate:"gt=0"`
	WidthCm     float64 `yaml:"widthCm" validate:"gt=0"`
	HeightCm    float64 `yaml:"heightCm" validate:"gt=0"`
	MaxWeightKg float64 `yaml:"maxWeightKg" validate:"gt=0"`
}

type TubeRow struct {
	ID          string  `yaml:"id" validate:"required"`
	LengthCm    float64 `yaml:"lengthCm" validate:"gt=0"`
	DiameterCm  float64 `yaml:"diameterCm" validate:"gt=0"`
	MaxWeightKg float64 `yaml:"maxWeightKg" validate:"gt=0"`
}

type BaseCostRow struct {
	Kind          string `yaml:"kind" validate:"required"`
	Size          string `yaml:"size" validate:"required"`
	BaseCost      int64  `yaml:"baseCost" validate:"gte=0"`
	PackagingCost int64  `yaml:"packagingCost" validate:"gte=0"`
	LeadDays      int    `yaml:"leadDays" validate:"gte=0"`
}

type VATRows struct {
	Rates     map[string]float64 `yaml:"rates" validate:"required,dive,keys,len=2,endkeys,gte=0,lt=1"`
	EUMembers []string           `yaml:"euMembers" validate:"required,dive,len=2"`
}

// ErrTablesInvalid is returned when a tables file fails structural validation.
var ErrTablesInvalid = errors.New("config: quote tables invalid")

var tablesValidator = newTablesValidator()

func newTablesValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// LoadTables reads the tables file at path, or the built-in defaults when path is empty.
func LoadTables(path string) (Tables, error) {
	raw := defaultTablesYAML
	source := "built-in tables"
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Tables{}, fmt.Errorf("config: read tables file %q: %w", path, err)
		}
		raw = data
		source = path
	}
	tables, err := ParseTables(raw)
	if err != nil {
		return Tables{}, fmt.Errorf("%s: %w", source, err)
	}
	return tables, nil
}

// ParseTables decodes and validates a YAML tables document. Unknown keys are rejected.
func ParseTables(raw []byte) (Tables, error) {
	var tables Tables
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&tables); err != nil {
		return Tables{}, fmt.Errorf("%w: decode: %v", ErrTablesInvalid, err)
	}
	tables.normalize()
	if err := tablesValidator.Struct(tables); err != nil {
		return Tables{}, fmt.Errorf("%w: %s", ErrTablesInvalid, describeValidation(err))
	}
	if wildcards := tables.wildcardZones(); wildcards > 1 {
		return Tables{}, fmt.Errorf("%w: %d zones declare the wildcard, at most one allowed", ErrTablesInvalid, wildcards)
	}
	return tables, nil
}

func (t *Tables) normalize() {
	for i := range t.Zones {
		t.Zones[i].ID = strings.TrimSpace(t.Zones[i].ID)
		for j, code := range t.Zones[i].Countries {
			t.Zones[i].Countries[j] = strings.ToUpper(strings.TrimSpace(code))
		}
	}
	for i := range t.Rates {
		t.Rates[i].Service = strings.ToUpper(strings.TrimSpace(t.Rates[i].Service))
	}
	for i := range t.ETAs {
		t.ETAs[i].Service = strings.ToUpper(strings.TrimSpace(t.ETAs[i].Service))
	}
	for i := range t.BaseCosts {
		t.BaseCosts[i].Kind = strings.ToLower(strings.TrimSpace(t.BaseCosts[i].Kind))
		t.BaseCosts[i].Size = strings.TrimSpace(t.BaseCosts[i].Size)
	}
	if len(t.VAT.Rates) > 0 {
		rates := make(map[string]float64, len(t.VAT.Rates))
		for code, rate := range t.VAT.Rates {
			rates[strings.ToUpper(strings.TrimSpace(code))] = rate
		}
		t.VAT.Rates = rates
	}
	for i, code := range t.VAT.EUMembers {
		t.VAT.EUMembers[i] = strings.ToUpper(strings.TrimSpace(code))
	}
}

func (t Tables) wildcardZones() int {
	count := 0
	for _, zone := range t.Zones {
		for _, code := range zone.Countries {
			if code == "*" {
				count++
				break
			}
		}
	}
	return count
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Tables.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
