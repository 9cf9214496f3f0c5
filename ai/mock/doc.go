// Package mock provides deterministic test doubles for the ai interfaces.
// No external services are required: embeddings are derived from token
// hashes and completions echo their prompts.
package mock
