// Package v1 contains the gRPC service descriptor, client stub and message
// helpers for the dhprime.v1.PrimalityService.
//
// Requests and responses are google.protobuf.Struct messages so the service
// can be served, proxied and inspected with standard tooling without a
// generated message package. Integers are carried as decimal strings because
// candidates routinely exceed the range of a JSON number.
package v1
