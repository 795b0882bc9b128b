// Package config provides configuration structures and utilities for corpuscrawl.
// It defines the process-wide options (timeouts, worker count, output paths,
// classifier threshold) and the per-source crawl descriptions loaded from the
// .corpuscrawl YAML file: start URLs, role rules, exclusion lists and
// politeness settings.
package config
