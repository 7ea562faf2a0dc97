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

// Package resource provides utilities for tracking resource lifetimes.
//
// It is used by Connection and Cursor to catch callers that forget to Close
// a handle: a finalizer panics with a diagnostic message instead of silently
// leaking the underlying OS resource. A Connection tracks its own prepared
// statements transitively, disposing them all on Close. This is a backstop
// only; correct code never relies on finalizer timing.
package resource

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Token is a field of a tracked object, holding the finalizer handle and message.
type Token struct {
	finalized atomic.Bool
	msg       string
}

// NewToken returns a new Token.
func NewToken() *Token {
	return &Token{}
}

// profilesM protects lazy profile creation below.
var profilesM sync.Mutex

var profiles = map[string]*tokenSet{}

// tokenSet tracks live tokens for one object type, for diagnostics only.
type tokenSet struct {
	m     sync.Mutex
	items map[*Token]struct{}
}

func profileFor(name string) *tokenSet {
	profilesM.Lock()
	defer profilesM.Unlock()

	p := profiles[name]
	if p == nil {
		p = &tokenSet{items: map[*Token]struct{}{}}
		profiles[name] = p
	}

	return p
}

// profileName returns a diagnostic name for the given object's type.
func profileName(obj any) string {
	return reflect.TypeOf(obj).Elem().String()
}

// Track tracks the lifetime of an object until Untrack is called on it.
//
// Obj should be a pointer to a struct with a field "token" of type *Token.
func Track[T any](obj *T, token *Token) {
	checkArgs(obj, token)

	name := profileName(obj)
	p := profileFor(name)

	p.m.Lock()
	p.items[token] = struct{}{}
	p.m.Unlock()

	token.msg = fmt.Sprintf("%T has not been closed", obj)

	runtime.SetFinalizer(obj, func(obj *T) {
		if token.finalized.CompareAndSwap(false, true) {
			panic(token.msg)
		}
	})
}

// Untrack stops tracking the lifetime of an object.
//
// It is safe to call this function multiple times concurrently.
func Untrack[T any](obj *T, token *Token) {
	checkArgs(obj, token)

	token.finalized.Store(true)
	runtime.SetFinalizer(obj, nil)

	name := profileName(obj)
	p := profileFor(name)

	p.m.Lock()
	delete(p.items, token)
	p.m.Unlock()
}

// checkArgs checks Track and Untrack arguments.
//
// Other creative misuses of Track should result in panics too, if less clear.
func checkArgs(obj any, token *Token) {
	if obj == nil {
		panic("obj must not be nil")
	}

	if token == nil {
		panic("token must not be nil")
	}

	pv := reflect.ValueOf(obj)
	if pv.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("obj must be a pointer to struct, got %T", obj))
	}

	v := pv.Elem()
	if v.Kind() != reflect.Struct {
		panic(fmt.Sprintf("obj must be a pointer to struct, got %T", obj))
	}

	f := v.FieldByName("token")
	if f.Kind() != reflect.Ptr || f.UnsafePointer() != unsafe.Pointer(token) {
		panic("token must be a pointer field of a struct")
	}
}
