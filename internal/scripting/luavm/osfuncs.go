package luavm

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

func osTime(L *lua.LState) int {
	L.Push(lua.LNumber(time.Now().Unix()))
	return 1
}

func osClock(L *lua.LState) int {
	L.Push(lua.LNumber(float64(time.Now().UnixNano()) / 1e9))
	return 1
}

func osDate(L *lua.LState) int {
	format := "%c"
	if L.GetTop() >= 1 {
		format = L.CheckString(1)
	}
	L.Push(lua.LString(strftime(format, time.Now())))
	return 1
}

func osDifftime(L *lua.LState) int {
	t2 := L.CheckNumber(1)
	t1 := L.CheckNumber(2)
	L.Push(lua.LNumber(float64(t2) - float64(t1)))
	return 1
}

// strftime supports the handful of directives scripts realistically use;
// anything unrecognised passes through verbatim.
func strftime(format string, t time.Time) string {
	replacer := map[byte]string{
		'Y': t.Format("2006"),
		'm': t.Format("01"),
		'd': t.Format("02"),
		'H': t.Format("15"),
		'M': t.Format("04"),
		'S': t.Format("05"),
		'c': t.Format("Mon Jan  2 15:04:05 2006"),
	}
	out := make([]byte, 0, len(format))
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			if rep, ok := replacer[format[i+1]]; ok {
				out = append(out, rep...)
				i++
				continue
			}
		}
		out = append(out, format[i])
	}
	return string(out)
}
