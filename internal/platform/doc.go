// Package platform describes the operating-system surfaces the BLE scan
// lifecycle depends on: the runtime permission table, the Bluetooth adapter,
// the LE scanner, the location-service switch and the foreground host.
//
// Backends live in sub-packages:
//   - sim: deterministic in-memory platform used by tests and --simulate
//   - desktop: permission and location tables shared by desktop backends
//   - bluez: Linux, BlueZ over D-Bus
//   - goble: macOS, CoreBluetooth through go-ble
//
// Callbacks handed to a backend may run on any goroutine. Consumers re-post
// them onto their own home goroutine; backends never call them inline from the
// registering call.
package platform
