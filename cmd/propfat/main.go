// Command propfat formats and edits FAT16 and FAT32 volumes in disk images or on SD cards.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := newCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
