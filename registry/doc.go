// Package registry maps logical audience names ("arm", "graph", "keyvault")
// to their descriptor and authenticating request pipeline.
//
// All pipelines of a Registry share one *tokenbroker.Broker, so a handler
// that only knows an audience name gets a client that attaches a valid
// bearer token for that audience to every request.
//
// # Quick Start
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reg, err := registry.NewFromConfig(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, _ := reg.Client(audience.DirectoryGraph)
//	desc, _ := reg.Descriptor(audience.DirectoryGraph)
//	resp, err := client.Get(desc.URL("/users"))
//
// # Retries
//
// The pipelines never retry. RetryingClient wraps a pipeline in a
// go-retryablehttp client whose policy gives up immediately on rejected
// tokens (AuthorizationDenied) and rejected credentials (a 4xx from the
// token endpoint).
package registry
