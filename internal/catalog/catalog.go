package catalog

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lox/marinestream/internal/models"
)

const (
	DefaultTimeField  = "time"
	DefaultGroupField = "station_id"

	erddapBase = "http://erddap.dm.marine.ie/erddap/tabledap/"
)

// Source describes one upstream dataset: where to fetch it, which columns to
// project and which field partitions aggregate buckets.
type Source struct {
	Name       string   `yaml:"name" json:"name"`
	Endpoint   string   `yaml:"endpoint" json:"endpoint"`
	Columns    []string `yaml:"columns" json:"columns"`
	TimeField  string   `yaml:"time_field" json:"time_field"`
	GroupField string   `yaml:"group_field" json:"group_field,omitempty"`
	// Filterable lists fields accepted as range filters.
	Filterable []string `yaml:"filterable" json:"filterable"`
}

// Builtin returns the datasets served by default.
func Builtin() []Source {
	return []Source{
		{
			Name:     "waves",
			Endpoint: erddapBase + "IWaveBNetwork.json",
			Columns: []string{
				"longitude", "latitude", "time", "station_id", "PeakPeriod",
				"PeakDirection", "UpcrossPeriod", "SignificantWaveHeight", "SeaTemperature",
			},
			TimeField:  DefaultTimeField,
			GroupField: DefaultGroupField,
			Filterable: []string{"latitude", "longitude"},
		},
		{
			Name:     "tides",
			Endpoint: erddapBase + "IrishNationalTideGaugeNetwork.json",
			Columns: []string{
				"longitude", "latitude", "altitude", "time", "station_id",
				"Water_Level", "Water_Level_LAT", "Water_Level_OD_Malin", "QC_Flag",
			},
			TimeField:  DefaultTimeField,
			GroupField: DefaultGroupField,
			Filterable: []string{"latitude", "longitude"},
		},
	}
}

// PageURL builds the upstream request for one page. The page start is
// exclusive so that adjacent pages never return the shared boundary twice.
func (s Source) PageURL(p models.Page, filters []models.RangeFilter) string {
	var b strings.Builder
	b.WriteString(s.Endpoint)
	b.WriteByte('?')
	b.WriteString(strings.Join(s.Columns, ","))
	b.WriteString(constraint(s.TimeField, ">", models.FormatTime(p.Start)))
	b.WriteString(constraint(s.TimeField, "<=", models.FormatTime(p.End)))
	for _, f := range filters {
		if f.Min != nil {
			b.WriteString(constraint(f.Field, ">=", formatFloat(*f.Min)))
		}
		if f.Max != nil {
			b.WriteString(constraint(f.Field, "<=", formatFloat(*f.Max)))
		}
	}
	return b.String()
}

func constraint(field, op, value string) string {
	op = strings.NewReplacer(">", "%3E", "<", "%3C").Replace(op)
	return "&" + field + op + value
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Catalog is the lookup table of named sources. It is safe for concurrent
// use; Replace swaps the table atomically for reloads.
type Catalog struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func New(sources ...Source) *Catalog {
	c := &Catalog{}
	c.Replace(sources)
	return c
}

func (c *Catalog) Lookup(name string) (Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sources[name]
	return s, ok
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) Sources() []Source {
	names := c.Names()
	out := make([]Source, 0, len(names))
	for _, name := range names {
		s, _ := c.Lookup(name)
		out = append(out, s)
	}
	return out
}

func (c *Catalog) Replace(sources []Source) {
	m := make(map[string]Source, len(sources))
	for _, s := range sources {
		m[s.Name] = s
	}
	c.mu.Lock()
	c.sources = m
	c.mu.Unlock()
}

type file struct {
	Sources []Source `yaml:"sources"`
}

// Load reads a YAML source list and merges it over the builtin sources.
// Entries with a builtin name replace that source.
func Load(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %q: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]Source, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}

	merged := Builtin()
	index := make(map[string]int, len(merged))
	for i, s := range merged {
		index[s.Name] = i
	}
	for _, s := range f.Sources {
		s = withDefaults(s)
		if err := validate(s); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if i, ok := index[s.Name]; ok {
			merged[i] = s
			continue
		}
		index[s.Name] = len(merged)
		merged = append(merged, s)
	}
	return merged, nil
}

func withDefaults(s Source) Source {
	if s.TimeField == "" {
		s.TimeField = DefaultTimeField
	}
	if s.Filterable == nil {
		s.Filterable = []string{"latitude", "longitude"}
	}
	return s
}

func validate(s Source) error {
	if s.Name == "" {
		return fmt.Errorf("source without name")
	}
	if s.Endpoint == "" {
		return fmt.Errorf("source %q: endpoint is required", s.Name)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("source %q: columns are required", s.Name)
	}
	for _, col := range s.Columns {
		if col == s.TimeField {
			return nil
		}
	}
	return fmt.Errorf("source %q: columns must include time field %q", s.Name, s.TimeField)
}
