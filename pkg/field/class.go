package field

import "fmt"

//Class is the class index emitted by the field detector. Values are part of the wire contract.
type Class int

const (
	RedCenterLine Class = 0
	BlueLine      Class = 1
	RedCircle     Class = 2
	GoalLine      Class = 3
	Field         Class = 4
	GoalZone      Class = 5
	Goal          Class = 6
	BlueCircle    Class = 7
)

//ClassesNum is the number of classes the field detector is configured with
const ClassesNum = 8

var classNames = map[Class]string{
	RedCenterLine: "RedCenterLine",
	BlueLine:      "BlueLine",
	RedCircle:     "RedCircle",
	GoalLine:      "GoalLine",
	Field:         "Field",
	GoalZone:      "GoalZone",
	Goal:          "Goal",
	BlueCircle:    "BlueCircle",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

func (c Class) Valid() bool {
	_, ok := classNames[c]
	return ok
}
