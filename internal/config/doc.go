// Package config defines configuration for the cdsfetch CLI.
//
// Configuration can be provided via:
//   - YAML configuration file (path in CDSFETCH_CONFIG)
//   - Environment variables (CDSFETCH_ prefix), which win over the file
//
// # Example
//
//	output_dir: /work/shared/datasets/temporary/AgERA5
//	year_first: 1990
//	year_last: 1999
//	workers: 10
//	ready_timeout: 10s
//	job_timeout: 6h
//	request:
//	  variable: 2m_temperature
//	  statistic: 24_hour_maximum
//	api:
//	  poll_interval: 1s
//	  max_poll_interval: 2m
//
// CDS credentials are not part of this file; see package cds.
package config
