// Package fusion runs UKF based SOC estimation fusing coulomb counting with
// terminal voltage predicted by an observation model from sliding feature windows.
package fusion
