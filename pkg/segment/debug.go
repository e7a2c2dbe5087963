package segment

import (
	"fmt"
	"os"
	"time"

	internalshm "github.com/srediag/shm-segment/internal/shm"
)

// DumpSegmentInfo prints the backing object details of a named segment:
// allocated size, permission mode and last modification time.
func DumpSegmentInfo(name string) {
	cleaned, err := internalshm.CleanName(name)
	if err != nil {
		fmt.Println(err)
		return
	}
	info, err := os.Stat(internalshm.PathFor(cleaned))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("name:%s size:%d mode:%s modified:%s\n",
		cleaned, info.Size(), info.Mode(), info.ModTime().Format(time.RFC3339))
}
