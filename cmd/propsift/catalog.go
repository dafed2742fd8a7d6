package main

import (
	"os"

	"propsift/internal/registry"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the query catalog",
}

var catalogDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the catalog as YAML",
	Long: `Print every entity with its segments, dimensions, and metrics as YAML.
Useful for dashboard builders and for diffing catalog changes between
releases.`,
	RunE: runCatalogDump,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogDumpCmd)
}

type catalogDump struct {
	Entities []entityDump `yaml:"entities"`
}

type entityDump struct {
	Key             string          `yaml:"key"`
	Label           string          `yaml:"label"`
	LabelPlural     string          `yaml:"labelPlural"`
	DateModes       []string        `yaml:"dateModes,omitempty"`
	DefaultDateMode string          `yaml:"defaultDateMode,omitempty"`
	Segments        []segmentDump   `yaml:"segments,omitempty"`
	Dimensions      []dimensionDump `yaml:"dimensions,omitempty"`
	Metrics         []metricDump    `yaml:"metrics,omitempty"`
}

type segmentDump struct {
	Key      string `yaml:"key"`
	Label    string `yaml:"label"`
	Category string `yaml:"category,omitempty"`
}

type dimensionDump struct {
	Key           string   `yaml:"key"`
	Label         string   `yaml:"label"`
	Field         string   `yaml:"field"`
	Granularities []string `yaml:"granularities,omitempty"`
}

type metricDump struct {
	Key    string `yaml:"key"`
	Type   string `yaml:"type"`
	Field  string `yaml:"field,omitempty"`
	Format string `yaml:"format,omitempty"`
}

func runCatalogDump(cmd *cobra.Command, args []string) error {
	catalog := registry.Default()

	var dump catalogDump
	for _, key := range catalog.EntityKeys() {
		e, _ := catalog.Entity(key)
		ed := entityDump{
			Key:             e.Key,
			Label:           e.Label,
			LabelPlural:     e.LabelPlural,
			DateModes:       e.DateModes,
			DefaultDateMode: e.DefaultDateMode,
		}
		for _, s := range catalog.SegmentsForEntity(key) {
			ed.Segments = append(ed.Segments, segmentDump{Key: s.Key, Label: s.Label, Category: s.Category})
		}
		for _, d := range catalog.DimensionsForEntity(key) {
			ed.Dimensions = append(ed.Dimensions, dimensionDump{
				Key:           d.Key,
				Label:         d.Label,
				Field:         d.Field,
				Granularities: d.Granularities,
			})
		}
		for _, m := range catalog.MetricsForEntity(key) {
			ed.Metrics = append(ed.Metrics, metricDump{
				Key:    m.Key,
				Type:   string(m.Type),
				Field:  m.Field,
				Format: m.Format,
			})
		}
		dump.Entities = append(dump.Entities, ed)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(dump)
}
