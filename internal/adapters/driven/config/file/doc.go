// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ConfigStore: TOML configuration at ~/.formsync/config.toml, with Watch
//     for picking up edits made outside the process
package file
