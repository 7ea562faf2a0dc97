// Copyright 2024 The ormlite Authors.
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

// Package iterator describes a generic Iterator interface used by
// deferred/lazy query results.
package iterator

import "errors"

// ErrIteratorDone is returned when the iterator is read to the end.
var ErrIteratorDone = errors.New("iterator is read to the end")

// Interface is an iterator interface.
//
// Next returns the next index/value pair, where the meaning of the index
// depends on the implementation (row number for a query cursor). When the
// iterator is exhausted, it returns a (possibly wrapped) ErrIteratorDone.
type Interface[E1, E2 any] interface {
	Next() (E1, E2, error)
}
