// Package integration contains the Integration bounded context.
// This context manages configured connections to external platforms
// (ERPs and storefronts) and the connector contract used to talk to them.
//
// Key concepts:
//   - Integration: Entity describing one configured platform connection for an org
//   - Connector: Port interface every platform adapter implements
//   - ConnectorRegistry: Registration-based lookup of adapter builders per platform
//   - EntitySyncResult: Value object reporting the outcome of syncing one entity type
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
