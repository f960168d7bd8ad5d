// Package memory provides the two memories of the agent: a live index of the
// project currently being watched and a durable index consolidated from past
// conversation and the project tree.
//
// Architecture:
//   - Store: Vector storage backend (chromem-go, ephemeral or persistent)
//   - Embedder: Text-to-vector conversion (Ollama for real use, mock for tests)
//   - Session: Live index manager (initial scan + filesystem notifier)
//   - Consolidator: Batch "sleep" pass that fills the durable collections
//   - Assembler: Per-query "wake" retrieval that builds the context block
//   - Recaller: On-demand query of the durable collections
//
// Collections:
//   - live_working_memory: ephemeral, one document per watched file
//   - semantic_knowledge: durable, one document per project file
//   - episodic_memory: durable, one document per interaction log entry
//
// Integration:
//   - The engine calls Assembler.Assemble before every model call and inserts
//     the block just before the latest user message.
//   - Recalled snippets are consumed by exactly one assembly.
package memory
