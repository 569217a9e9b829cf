// Package client contains the operator-side connection to the tipbot server.
//
// # Overview
//
// Client is the transport-agnostic contract used by the CLI: Ping and a
// generic Call taking and returning plain maps. GRPCClient implements it over
// the TipService gRPC API, injects an access token via an interceptor, mints a
// new token when the server reports the current one expired, and maps gRPC
// status codes to sentinel errors.
//
// # Error Handling
//
// Transport conditions are exposed as ErrUnavailable and ErrUnauthorized
// (match with errors.Is). Server refusals come back as *ServerError carrying
// the user-facing message.
package client
