// Package plugins hosts sample rule packs. It contains no runtime code
// itself; the architectural guard test lives alongside it.
//
// Rule packs depend only on the public carerules/pkg/... surface
// (domain, view, ruleapi) and reach the repository and asset store through
// the capabilities handed to each handler.
package plugins
