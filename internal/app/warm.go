package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
	"fastsearch-cache/internal/common/utils"
	"fastsearch-cache/internal/warmer"
)

// seedFile is the YAML layout of CACHE_WARM_FILE:
//
//	jobs:
//	  - name: categories
//	    ttl: 1h
//	    tags: [categories]
//	    entries:
//	      category_1: {name: Books}
type seedFile struct {
	Jobs []seedJob `yaml:"jobs"`
}

type seedJob struct {
	Name      string                 `yaml:"name"`
	TTL       string                 `yaml:"ttl"`
	Tags      []string               `yaml:"tags"`
	Overwrite bool                   `yaml:"overwrite"`
	Entries   map[string]interface{} `yaml:"entries"`
}

// LoadSeedJobs reads warm-up jobs from a YAML seed file.
func LoadSeedJobs(path string) ([]warmer.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("cannot read warm file: %v", err)).WithContext("path", path)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid warm file: %v", err)).WithContext("path", path)
	}

	jobs := make([]warmer.Job, 0, len(file.Jobs))
	for i, sj := range file.Jobs {
		name := sj.Name
		if name == "" {
			name = fmt.Sprintf("seed-%d", i+1)
		}

		var ttl time.Duration
		if sj.TTL != "" {
			if ttl, err = utils.ParseDuration(sj.TTL); err != nil {
				return nil, errors.ConfigError(fmt.Sprintf("job %s: %v", name, err)).WithContext("path", path)
			}
		}

		keys := make([]string, 0, len(sj.Entries))
		for key := range sj.Entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		entries := sj.Entries
		jobs = append(jobs, warmer.Job{
			Name: name,
			Keys: warmer.StaticKeys(keys...),
			Produce: func(_ context.Context, key string) (interface{}, bool, error) {
				value, ok := entries[key]
				return value, ok, nil
			},
			TTL:       ttl,
			Tags:      sj.Tags,
			Overwrite: sj.Overwrite,
		})
	}
	return jobs, nil
}

// WarmFromFile loads the configured seed file into the cache. It is a no-op
// without CACHE_WARM_FILE.
func (app *App) WarmFromFile(ctx context.Context) ([]warmer.Result, error) {
	if app.Config.WarmFile == "" {
		return nil, nil
	}

	jobs, err := LoadSeedJobs(app.Config.WarmFile)
	if err != nil {
		return nil, err
	}

	results, err := app.Warmer.Run(ctx, jobs...)
	warmed := 0
	for _, r := range results {
		warmed += r.Warmed
	}
	app.Logger.Info("Cache warm-up finished",
		logging.Field{Key: "file", Value: app.Config.WarmFile},
		logging.Field{Key: "jobs", Value: len(results)},
		logging.Field{Key: "warmed", Value: warmed})
	return results, err
}
