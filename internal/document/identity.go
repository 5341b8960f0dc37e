package document

import "github.com/google/uuid"

// idNamespace is the fixed UUIDv5 namespace for document identifiers.
// Changing it would re-key every stored document, so it is a constant.
var idNamespace = uuid.MustParse("8f2f9f8e-4d5a-4b6e-9c1d-2a7e6b3c5d41")

// ID derives the stable identifier for a (source, naturalKey) pair.
//
// The derivation is a pure function: re-running ingestion for an
// unchanged record yields the same id and therefore an overwrite in the
// vector store, not a duplicate. Both fields participate in the name so
// equal natural keys from different sources never collide.
func ID(source Source, naturalKey string) string {
	return uuid.NewSHA1(idNamespace, []byte(string(source)+"/"+naturalKey)).String()
}
