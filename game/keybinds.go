package game

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Keybinds maps in-game controls to device key codes. Use and Interact are
// mouse buttons, everything else is a keyboard key.
type Keybinds struct {
	Forward  string `toml:"forward"`
	Backward string `toml:"backward"`
	Left     string `toml:"left"`
	Right    string `toml:"right"`
	Use      string `toml:"use"`
	Interact string `toml:"interact"`
	Pickup   string `toml:"pickup"`
	Place    string `toml:"place"`
	Drop     string `toml:"drop"`
	Torch    string `toml:"torch"`
	Switch   string `toml:"switch"`
	Crouch   string `toml:"crouch"`
	Sprint   string `toml:"sprint"`
	Journal  string `toml:"journal"`
	Talk     string `toml:"talk"`
	Radio    string `toml:"radio"`
}

// DefaultKeybinds are the game's out-of-the-box controls.
func DefaultKeybinds() Keybinds {
	return Keybinds{
		Forward:  "w",
		Backward: "s",
		Left:     "a",
		Right:    "d",
		Use:      "right",
		Interact: "left",
		Pickup:   "e",
		Place:    "f",
		Drop:     "g",
		Torch:    "t",
		Switch:   "q",
		Crouch:   "c",
		Sprint:   "shift_l",
		Journal:  "j",
		Talk:     "v",
		Radio:    "b",
	}
}

// LoadKeybinds reads the [keybinds] table of a TOML commands file over the
// defaults. A missing file or table yields the defaults; keys absent from the
// table keep their default binding.
func LoadKeybinds(path string) (Keybinds, error) {
	kb := DefaultKeybinds()
	if path == "" {
		return kb, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return kb, nil
	}
	if err != nil {
		return kb, fmt.Errorf("failed to read keybinds: %w", err)
	}
	doc := struct {
		Keybinds Keybinds `toml:"keybinds"`
	}{Keybinds: kb}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return kb, fmt.Errorf("failed to parse TOML: %w", err)
	}
	slog.Debug("keybinds loaded", slog.String("path", path), slog.String("component", "game"))
	return doc.Keybinds, nil
}
