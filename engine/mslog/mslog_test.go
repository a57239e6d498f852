package mslog

import "testing"

func TestMSLog(t *testing.T) {
	SetSource("mslog_test")
	SetLevel(DebugLevel)

	if lv := StringToLevel("debug"); lv != DebugLevel {
		t.Fail()
	}
	if lv := StringToLevel("info"); lv != InfoLevel {
		t.Fail()
	}
	if lv := StringToLevel("warn"); lv != WarnLevel {
		t.Fail()
	}
	if lv := StringToLevel("error"); lv != ErrorLevel {
		t.Fail()
	}
	if lv := StringToLevel("panic"); lv != PanicLevel {
		t.Fail()
	}
	if lv := StringToLevel("fatal"); lv != FatalLevel {
		t.Fail()
	}

	Debugf("this is a debug %d", 1)
	SetLevel(InfoLevel)
	Debugf("SHOULD NOT SEE THIS!")
	Infof("this is an info %d", 2)
	Warnf("this is a warning %d", 3)
	TraceError("this is a trace error %d", 4)
	func() {
		defer func() {
			_ = recover()
		}()
		Panicf("this is a panic %d", 4)
	}()
}
