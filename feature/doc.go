// Package feature builds normalized feature windows consumed by observation models.
package feature
