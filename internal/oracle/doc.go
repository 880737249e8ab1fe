// Package oracle implements the passage existence oracle: a gRPC service in
// front of the passage identifier store, and the client the validator uses to
// query it.
//
// The protocol has a single unary method, ValidatePassages, taking a list of
// identifiers and returning a list of booleans of equal length and order.
// Messages are JSON-encoded (content-subtype "json"), so no generated
// protobuf code is needed. Deduplication is the caller's job.
//
// Every oracle, remote or embedded, satisfies Checker. Client never retries;
// transport failures come back as *ServiceError classified as ErrUnreachable,
// ErrTimeout or ErrProtocol and the caller decides what they mean.
package oracle
