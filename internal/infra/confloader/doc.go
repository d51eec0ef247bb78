// Package confloader provides configuration loading for Redistill.
//
// It uses Koanf to merge configuration from multiple sources with
// priority: legacy env aliases > REDISTILL_* env > YAML file > defaults.
package confloader
