//go:build !withcv
// +build !withcv

/*
DESCRIPTION
  nocv.go replaces main when imgstats is built without OpenCV.

AUTHORS
  The camstack developers

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("imgstats requires OpenCV, build with -tags withcv")
	os.Exit(1)
}
