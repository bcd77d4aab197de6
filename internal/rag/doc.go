// Package rag implements Retrieval-Augmented Generation for lore.
//
// The package owns the whole knowledge loop: documents are chunked and
// embedded into the vector store, queries retrieve the most similar passages
// and condition the language model on them, and verified answers are written
// back into the store so later queries benefit from them.
//
// # Architecture
//
//	Document text
//	     |
//	     v
//	Splitter (bounded, overlapping chunks)
//	     |
//	     v
//	Pipeline (embed chunks, one batched upsert)
//	     |
//	     v
//	Vector store (directory-persisted)
//	     |
//	     | (when querying)
//	     v
//	Engine (embed query -> top-k search -> stuffed prompt -> generate)
//	     |
//	     v
//	Answer + ranked source passages
//	     |
//	     | (when the caller confirms the answer)
//	     v
//	Learner ("Question/Verified Answer" document -> Pipeline)
//
// # Components
//
//   - Splitter: deterministic recursive text chunking
//   - Pipeline: ingestion (chunk, embed, upsert)
//   - Engine: retrieval and generation
//   - Learner: feedback write-back
//   - System: lifecycle state machine and the three-operation API
//     (Ingest, Query, Learn) consumed by the CLI layer
//
// Provider interfaces (Embedder, Generator, HealthChecker) are defined here,
// in the consumer package; the ollama client satisfies them. The vector
// store is consumed through the VectorIndex interface for the same reason.
//
// # Errors
//
// Every public operation returns typed failures checkable with errors.Is:
// ErrConnectivity (provider unreachable or timed out), ErrIngestion,
// ErrEmptyQuery, ErrLearn and ErrNotReady from this package, plus store.ErrEmptyStore,
// store.ErrPersistence and friends passed through from the storage layer.
// Nothing panics across package boundaries.
package rag
