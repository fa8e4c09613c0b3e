// Package models contains GORM persistence models for the domain entities.
//
// Models are kept separate from domain entities so that storage concerns
// (column types, indexes, JSON serialization of nested values) never leak
// into the domain layer. Every model provides ToDomain and FromDomain
// conversion helpers; repositories are the only callers.
package models
