// Package dag is a small directed graph used to prove that an evaluated task
// graph is acyclic and to order its nodes topologically.
package dag
