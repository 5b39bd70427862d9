// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plugin

// State of an Instance in its lifecycle:
//
//	Constructed | Deserialized -> Configured -> Initialized <-> Terminated -> Destroyed
//
// Execution doesn't change the state: it's valid in StateInitialized, and concurrent executions on
// different streams only read the instance.
type State int

//go:generate go tool enumer -type=State -trimprefix=State -output=gen_state_enumer.go state.go

const (
	StateConstructed State = iota
	StateDeserialized
	StateConfigured
	StateInitialized
	StateTerminated
	StateDestroyed
)
