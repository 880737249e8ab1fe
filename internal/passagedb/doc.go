// Package passagedb provides the SQLite-backed passage identifier store used
// by the existence oracle.
//
// The store is a single table of unique identifiers of the form
// "<document_id>:<passage_index>". It has two lifecycle phases that never
// overlap:
//
//   - Population: Open + Populate rebuild the table from an identifier hash
//     file in batched transactions with journaling and synchronous writes
//     disabled, then VACUUM.
//   - Serving: OpenReadOnly + Validate answer existence queries from many
//     goroutines at once. RowCount lets a server assert it mounted the
//     expected file.
package passagedb
