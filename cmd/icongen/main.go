// Command icongen writes the app icon to assets/icons for packaging.
package main

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"deskwidgets/internal/assets"
)

func main() {
	log := zap.NewExample().Sugar()
	defer log.Sync()

	dir := filepath.Join("assets", "icons")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("Failed to create %s: %v", dir, err)
	}

	data := assets.PNG()
	for _, name := range []string{"tray.png", "app.png"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0644); err != nil {
			log.Fatalf("Failed to write %s: %v", p, err)
		}
		log.Infof("Wrote %s", p)
	}
}
