// Package catalog mirrors the strategy registry into persistence so goals
// and strategies can be listed and referenced by stored audits.
package catalog
