// Package memory provides a local, in-memory vector store for personal
// memories and the recall flow built on top of it.
//
// A memory is a short piece of text ("went to the park with Asha") with an
// optional emotion tag and a timestamp. Memories are embedded into a vector
// space so a later question can retrieve the most similar ones, which are
// then handed to a language model to produce a gentle, natural answer.
//
// Architecture:
//   - Embedder: Text-to-vector conversion (hash embedder for tests, ONNX or Gemini for real use)
//   - Index: Append-only nearest-neighbour index (chromem-go)
//   - Store: Owns records and index, upserts by normalized text, guards mutation
//   - Manager: Retrieves context from the Store and asks an Answerer
//
// Slots:
//
// Every new memory occupies one slot in the index and keeps it for the
// lifetime of the Store. Re-adding the same text (ignoring case and
// surrounding whitespace) updates the existing record in place; its
// timestamp is refreshed, its emotion is replaced when a new one is given,
// and the stored text takes the latest casing. The vector in the slot is
// the one computed on first insertion and is not recomputed.
//
// Nothing is persisted. A Store lives as long as the process holds it.
package memory
