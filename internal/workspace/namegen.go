package workspace

import (
	"fmt"
	"math/rand"
)

var nameAdjectives = []string{
	"amber", "bold", "brisk", "calm", "clever", "crisp", "eager", "fuzzy",
	"gentle", "keen", "lively", "mellow", "nimble", "quiet", "rapid",
	"steady", "sunny", "swift", "vivid", "witty",
}

var nameNouns = []string{
	"aspen", "badger", "canyon", "comet", "falcon", "fjord", "garnet",
	"harbor", "heron", "lagoon", "maple", "meadow", "otter", "pebble",
	"quartz", "raven", "ridge", "sparrow", "tundra", "willow",
}

// GenerateName produces a workspace directory name in the
// adjective-noun-number scheme, e.g. "brisk-falcon-17".
func GenerateName() string {
	adjective := nameAdjectives[rand.Intn(len(nameAdjectives))]
	noun := nameNouns[rand.Intn(len(nameNouns))]
	return fmt.Sprintf("%s-%s-%d", adjective, noun, rand.Intn(100))
}
