/*
Package concurrency provides advanced concurrency primitives with observability.

Features:
  - SmartMutex / SmartRWMutex: Deadlock detection and slow lock logging
  - SafeGo / FanOut: Panic-safe goroutine launching
*/
package concurrency
