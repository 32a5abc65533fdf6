// Copyright Project Helmsman Authors
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

package store

import "fmt"

// NotFoundError is returned when a named resource does not exist.
type NotFoundError struct {
	Kind Kind
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// ConflictError is returned when adding a resource whose name is taken.
type ConflictError struct {
	Kind Kind
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// CapacityError is returned when a collection is full and the store is
// configured to reject on capacity.
type CapacityError struct {
	Kind    Kind
	Current int
	Limit   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s capacity exceeded: %d of %d in use", e.Kind, e.Current, e.Limit)
}

// DependencyError is returned when a resource references another that does
// not exist, for example a route naming an absent cluster.
type DependencyError struct {
	Kind       Kind
	Name       string
	Dependency Kind
	Missing    string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s %q references unknown %s %q", e.Kind, e.Name, e.Dependency, e.Missing)
}

// InUseError is returned when removing a resource that another resource
// still references.
type InUseError struct {
	Kind   Kind
	Name   string
	UsedBy Kind
	User   string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s %q is still referenced by %s %q", e.Kind, e.Name, e.UsedBy, e.User)
}

// ConcurrentModificationError is returned when a multi-step operation
// observes a resource disappearing between its validation and install
// phases.
type ConcurrentModificationError struct {
	Kind Kind
	Name string
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s %q was modified concurrently", e.Kind, e.Name)
}

// ValidationError wraps a validator failure with the resource it rejects.
type ValidationError struct {
	Kind Kind
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q failed validation: %v", e.Kind, e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
