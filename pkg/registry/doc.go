// Package registry holds State Descriptors: the identity, capability tags, entry points and
// behavior factory of every state an agent can enter. The Transition Controller consults
// it on every Push and Replace.
package registry
