// Package cds is a client for the Copernicus Climate Data Store retrieval API.
//
// A retrieval is asynchronous on the server side:
//   - POST {url}/resources/{dataset} submits the request
//   - GET {url}/tasks/{request_id} reports queued, running, completed or failed
//   - GET {location} streams the prepared result
//   - DELETE {url}/tasks/{request_id} releases it
//
// Retrieve hides the polling and streams the result to an io.Writer.
// Nothing is retried: every HTTP or service error is returned to the caller.
//
// # Credentials
//
// Credentials come from a .cdsapirc file:
//
//	url: https://cds.climate.copernicus.eu/api/v2
//	key: 12345:abcdef01-2345-6789-abcd-ef0123456789
//
// CDSAPI_URL and CDSAPI_KEY override the file, CDSAPI_RC relocates it.
//
// # Usage
//
//	creds, err := cds.LoadCredentials("")
//	client := cds.NewClient(creds, cds.DefaultOptions())
//	n, err := client.Retrieve(ctx, "sis-agrometeorological-indicators",
//	    cds.DefaultTemplate().WithYear("1990"), w)
package cds
