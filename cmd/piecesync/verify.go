package main

import (
	"fmt"
	"os"

	"github.com/anacrolix/tagflag"
	"github.com/dustin/go-humanize"
)

type VerifyCmd struct {
	PieceLength tagflag.Bytes `default:"256KiB"`
	File        string        `arg:"positional,required"`
}

func verifyErr(cmd *VerifyCmd) error {
	f, err := os.Open(cmd.File)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := infoForFile(f, cmd.PieceLength.Int64())
	if err != nil {
		return err
	}
	fmt.Printf("%v: %s in %d pieces of %s\n",
		info.Name,
		humanize.Bytes(uint64(info.TotalLength())),
		info.NumPieces(),
		humanize.IBytes(uint64(info.PieceLength)))
	fmt.Println(info.InfoHash())
	fmt.Println(info.Magnet())
	return nil
}
