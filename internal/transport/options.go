package transport

// ErrorHandler 消息处理失败时的回调
type ErrorHandler func(topic string, err error)

type Option func(*Options)

type Options struct {
	MsgBufferSize int
	OnError       ErrorHandler
}

func defaultOptions() Options {
	return Options{
		MsgBufferSize: 100,
		OnError:       func(topic string, err error) {},
	}
}

func WithMsgBufferSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.MsgBufferSize = size
		}
	}
}

func WithOnError(handler ErrorHandler) Option {
	return func(o *Options) {
		if handler != nil {
			o.OnError = handler
		}
	}
}

func applyOptions(opts []Option) Options {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
