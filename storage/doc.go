// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage provides the persistence abstraction layer for healthrag.
//
// The unit of persistence is a Snapshot: a manifest plus two aligned
// artifacts, the document metadata table and the vector matrix. The
// IndexStore interface decouples the snapshot format from the backing
// store so different backends (BadgerDB, in-memory) can be used
// interchangeably:
//
//	store, err := badger.OpenStore(path)  // returns storage.IndexStore
//
// Binary serialization uses the MUS format. Documents and vectors are
// serialized independently so a loader can tell which artifact is
// damaged and report it through *core.LoadError.
package storage
